package filesystem

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var filenameStripRegex = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// maxFilenameLength 文件名最大长度（保留扩展名）
const maxFilenameLength = 200

// SecureFilename 将任意文件名转换为可安全用于磁盘和 Content-Disposition 的 ASCII 名称
//
// 处理顺序:
//  1. NFKD 规范化后丢弃非 ASCII 字符
//  2. 路径分隔符替换为空格，连续空白合并为下划线
//  3. 删除 [A-Za-z0-9_.-] 以外的字符，去掉首尾的 . 和 _
//
// 结果可能为空字符串，调用方需自行兜底
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, name)

	name = strings.ReplaceAll(name, "/", " ")
	name = strings.ReplaceAll(name, "\\", " ")
	name = strings.Join(strings.Fields(name), "_")
	name = filenameStripRegex.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	return limitLength(name, maxFilenameLength)
}

// limitLength 截断过长的文件名，尽量保留扩展名
func limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	ext := filepath.Ext(s)
	if len(ext) >= maxLen {
		return s[:maxLen]
	}
	return strings.TrimSuffix(s, ext)[:maxLen-len(ext)] + ext
}
