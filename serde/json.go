package serde

import (
	"encoding/json"
	"io"
)

// JSONSerializer 基于 encoding/json，零值的输出与 json.Marshal 一致
type JSONSerializer struct {
	// DisallowUnknownFields 使 Deserialize 遇到目标中不存在的字段时报错
	DisallowUnknownFields bool
	// DisableHTMLEscape 关闭 <、> 和 & 的转义
	DisableHTMLEscape bool
}

func (s JSONSerializer) Serialize(w io.Writer, v any, indent string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(!s.DisableHTMLEscape)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(v)
}

func (s JSONSerializer) Deserialize(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if s.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}
