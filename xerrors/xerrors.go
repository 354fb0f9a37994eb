// Package xerrors 为 dbroute 提供标准化的错误处理工具。
// 这是一个基础包，不依赖于 dbroute 的其他组件。
package xerrors

import (
	"errors"
	"fmt"
)

// ============================================================================
// 哨兵错误 - 各组件通用的错误类型
// ============================================================================

var (
	// ErrNotFound 表示请求的资源未找到。
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput 表示输入参数无效。
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable 表示服务或资源不可用。
	ErrUnavailable = errors.New("unavailable")

	// ErrConflict 表示与当前状态冲突。
	ErrConflict = errors.New("conflict")

	// ErrInternal 表示内部错误。
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// 错误包装 - 保留带上下文的错误链
// ============================================================================

// Wrap 用额外的上下文信息包装错误。
// 如果 err 为 nil，则返回 nil。
//
// 示例：
//
//	if err != nil {
//	    return xerrors.Wrap(err, "解析分片配置失败")
//	}
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
// 如果 err 为 nil，则返回 nil。
//
// 示例：
//
//	if err != nil {
//	    return xerrors.Wrapf(err, "table %s: bad mod section", table)
//	}
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Must - 遇到错误时 panic（仅用于初始化）
// ============================================================================

// Must 如果 err 不为 nil，则 panic。仅在初始化阶段使用。
// 如果 err 为 nil，则返回 v。
//
// 示例：
//
//	topo := xerrors.Must(shard.Build(settings))
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// ============================================================================
// MultiError - 合并多个错误为一个
// ============================================================================

// MultiError 用于将多个错误合并为一个错误。
type MultiError struct {
	Errors []error
}

// Error 实现 error 接口。
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

// Unwrap 返回错误列表，支持 errors.Is/As（Go 1.20+）。
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个。
// 如果所有错误都为 nil，则返回 nil。
// 如果只有一个非 nil 错误，则返回该错误。
// 如果有多个非 nil 错误，则返回 MultiError。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// ============================================================================
// 标准库常用方法的再导出，便于使用
// ============================================================================

var (
	// New 创建一个带指定消息的新错误。
	New = errors.New

	// Is 判断 err 的错误链中是否有错误与 target 匹配。
	Is = errors.Is

	// As 查找 err 的错误链中第一个与 target 匹配的错误。
	As = errors.As

	// Join 返回一个包装给定错误的错误（Go 1.20+）。
	Join = errors.Join
)
