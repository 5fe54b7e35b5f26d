// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 哨兵错误：调用方通过 errors.Is 判断并映射为 HTTP 状态码或 socket 错误帧
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
	// ErrProtected 受保护资源（如 default 指令）不可删除
	ErrProtected = errors.New("protected resource")
	// ErrBusy 会话已有进行中的流
	ErrBusy = errors.New("session busy")
	// ErrInactive 会话已停止
	ErrInactive = errors.New("session inactive")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Invalidf 构造一个可被 errors.Is(err, ErrInvalidArg) 识别的校验错误
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArg)
}

// Is 转发标准库 errors.Is，便于调用方只导入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 转发标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}
