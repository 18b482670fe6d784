package filesystem

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空格替换为下划线", "My cool movie.mov", "My_cool_movie.mov"},
		{"路径穿越被清理", "../../../etc/passwd", "etc_passwd"},
		{"变音符号转为 ASCII", "i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"特殊字符被删除", "Rick Astley - Never Gonna Give You Up (Official).mp4", "Rick_Astley_-_Never_Gonna_Give_You_Up_Official.mp4"},
		{"首尾的点和下划线被去掉", "  ..hidden_.mp3__ ", "hidden_.mp3"},
		{"纯非 ASCII 返回空", "日本語", ""},
		{"反斜杠视为分隔符", `C:\Users\me\clip.mp4`, "C_Users_me_clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.input))
		})
	}
}

func TestSecureFilename_LongName(t *testing.T) {
	long := strings.Repeat("a", 300) + ".mp4"

	got := SecureFilename(long)
	assert.Len(t, got, maxFilenameLength)
	assert.True(t, strings.HasSuffix(got, ".mp4"))
}

func TestLimitLength(t *testing.T) {
	assert.Equal(t, "short.mp4", limitLength("short.mp4", 20))
	assert.Equal(t, "abc.mp4", limitLength("abcdefgh.mp4", 7))
	assert.Equal(t, "x.veryl", limitLength("x.verylongextension", 7))
}
