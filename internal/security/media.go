package security

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mediadl/backend/internal/domain"
)

// MediaInspector 检查下载结果确实是音视频或图片文件
//
// 平台页面被篡改或返回错误页时，抓取到的可能是 HTML 或可执行文件，
// 这类文件不能通过 /download/<id> 下发给用户
type MediaInspector struct {
	// 危险文件扩展名
	dangerousExtensions map[string]bool

	// 允许的非 audio/video/image 类型（容器格式有时被识别为通用类型）
	extraMimeTypes map[string]bool
}

// NewMediaInspector 创建媒体文件检查器
func NewMediaInspector() *MediaInspector {
	return &MediaInspector{
		dangerousExtensions: map[string]bool{
			".exe":  true,
			".bat":  true,
			".cmd":  true,
			".scr":  true,
			".com":  true,
			".vbs":  true,
			".js":   true,
			".jar":  true,
			".php":  true,
			".sh":   true,
			".html": true,
			".htm":  true,
		},
		extraMimeTypes: map[string]bool{
			"application/ogg":          true,
			"application/octet-stream": true, // 未识别的二进制（部分 DASH 分片）
		},
	}
}

// executableSignatures 可执行文件魔数
var executableSignatures = [][]byte{
	{0x4D, 0x5A},             // PE executable
	{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
	{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
}

// Inspect 检查文件，不安全时返回包装了 domain.ErrUnsafeMedia 的错误
//
// 返回值:
//   - string: 识别出的 MIME 类型
//   - error: 文件无法读取或不是媒体文件
func (mi *MediaInspector) Inspect(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if mi.dangerousExtensions[ext] {
		return "", fmt.Errorf("%w: dangerous file extension %s", domain.ErrUnsafeMedia, ext)
	}

	if err := checkFileMagic(path); err != nil {
		return "", err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect file type: %w", err)
	}

	for extra := range mi.extraMimeTypes {
		if mtype.Is(extra) {
			return mtype.String(), nil
		}
	}
	for m := mtype; m != nil; m = m.Parent() {
		top, _, _ := strings.Cut(m.String(), "/")
		switch top {
		case "video", "audio", "image":
			return mtype.String(), nil
		}
	}

	return "", fmt.Errorf("%w: detected %s", domain.ErrUnsafeMedia, mtype.String())
}

// checkFileMagic 拒绝可执行文件
func checkFileMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 4)
	n, _ := f.Read(header)
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header[:n], sig) {
			return fmt.Errorf("%w: executable file detected", domain.ErrUnsafeMedia)
		}
	}
	return nil
}
