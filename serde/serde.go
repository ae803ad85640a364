// Package serde 提供响应体与配置文件共用的序列化器。
package serde

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Serializer 序列化 json、xml、yaml 或 toml
type Serializer interface {
	// Serialize 序列化数据
	Serialize(w io.Writer, v any, indent string) error
	// Deserialize 反序列化
	Deserialize(r io.Reader, v any) error
}

// For returns the serializer registered for format, which may be a bare
// name ("yaml") or a file name ("relay.yml").
func For(format string) (Serializer, error) {
	name := strings.ToLower(format)
	if ext := filepath.Ext(name); ext != "" {
		name = ext[1:]
	}
	switch name {
	case "json":
		return JSONSerializer{}, nil
	case "xml":
		return XMLSerializer{}, nil
	case "yaml", "yml":
		return YAMLSerializer{}, nil
	case "toml":
		return TOMLSerializer{}, nil
	default:
		return nil, fmt.Errorf("serde: unsupported format %q", format)
	}
}
