package errors

import "errors"

// 跨层共享的业务错误

var (
	// ErrInvalidImage 图片数据无法解码或格式不受支持
	ErrInvalidImage = errors.New("图片数据无效")
	// ErrObjectNotFound 存储中不存在该对象
	ErrObjectNotFound = errors.New("文件不存在")
)
