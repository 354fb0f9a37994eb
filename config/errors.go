package config

import "github.com/ceyewan/dbroute/xerrors"

// ErrValidationFailed 配置为空或验证失败
var ErrValidationFailed = xerrors.New("config: validation failed")

// ErrConfigFileNotFound 显式指定的配置文件不存在
var ErrConfigFileNotFound = xerrors.Wrap(xerrors.ErrNotFound, "config: file not found")

// IsNotFound 检查错误是否为配置未找到
func IsNotFound(err error) bool {
	return xerrors.Is(err, xerrors.ErrNotFound)
}

// IsValidationFailed 检查错误是否为配置验证失败
func IsValidationFailed(err error) bool {
	return xerrors.Is(err, ErrValidationFailed)
}
