// Package avatar 处理用户头像：base64 data URI 编解码、格式校验与超尺寸缩放。
package avatar

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"

	pkgerrors "accounthub/pkg/errors"
)

// DefaultMaxSize 头像宽高上限（像素）
const DefaultMaxSize = 100

// maxPixels 解码前的像素总数上限，防止超大图片耗尽内存
const maxPixels = 40_000_000

// Image 处理后的头像
type Image struct {
	Data    []byte
	Format  string // png | jpeg | gif
	Width   int
	Height  int
	Resized bool
}

// Ext 文件扩展名
func (i *Image) Ext() string { return i.Format }

// ContentType MIME 类型
func (i *Image) ContentType() string { return "image/" + i.Format }

// Processor 头像处理器
type Processor struct {
	maxSize int
}

// NewProcessor 创建处理器，maxSize<=0 时使用默认值
func NewProcessor(maxSize int) *Processor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Processor{maxSize: maxSize}
}

// MaxSize 宽高上限
func (p *Processor) MaxSize() int { return p.maxSize }

// Process 校验图片；任一边超过上限时按比例缩小至上限以内，否则原样返回
func (p *Processor) Process(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, pkgerrors.ErrInvalidImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: 尺寸 %dx%d 不受支持", pkgerrors.ErrInvalidImage, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= p.maxSize && bounds.Dy() <= p.maxSize {
		return &Image{
			Data:   data,
			Format: format,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		}, nil
	}

	imgFormat, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidImage, err)
	}

	resized := imaging.Fit(img, p.maxSize, p.maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imgFormat); err != nil {
		return nil, fmt.Errorf("编码缩放后图片失败: %w", err)
	}

	rb := resized.Bounds()
	return &Image{
		Data:    buf.Bytes(),
		Format:  format,
		Width:   rb.Dx(),
		Height:  rb.Dy(),
		Resized: true,
	}, nil
}

// ── data URI ──

// DecodeDataURI 解析 "data:image/png;base64,...." 形式的字符串
// 返回原始字节与声明的扩展名
func DecodeDataURI(s string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(s, ";base64,")
	if !ok {
		return nil, "", fmt.Errorf("%w: 缺少 base64 标记", pkgerrors.ErrInvalidImage)
	}
	mediaType := strings.TrimPrefix(header, "data:")
	_, ext, ok := strings.Cut(mediaType, "/")
	if !ok || ext == "" {
		return nil, "", fmt.Errorf("%w: 无效的媒体类型 %q", pkgerrors.ErrInvalidImage, mediaType)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, "", fmt.Errorf("%w: base64 解码失败", pkgerrors.ErrInvalidImage)
	}
	return data, ext, nil
}

// EncodeDataURI 将图片字节编码为 data URI
func EncodeDataURI(data []byte, ext string) string {
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data)
}
