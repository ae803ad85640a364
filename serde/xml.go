package serde

import (
	"encoding/xml"
	"io"
)

// XMLSerializer 基于 encoding/xml。Header 为 true 时在文档前写入 xml.Header
type XMLSerializer struct {
	Header bool
}

func (s XMLSerializer) Serialize(w io.Writer, v any, indent string) error {
	if s.Header {
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
	}
	enc := xml.NewEncoder(w)
	if indent != "" {
		enc.Indent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (s XMLSerializer) Deserialize(r io.Reader, v any) error {
	return xml.NewDecoder(r).Decode(v)
}
