package relay

import "io"

// Renderer is the interface that wraps the Render function. Router.View
// routes render through it.
type Renderer interface {
	Render(c Context, w io.Writer, name string, data any) error
}

// TemplateRenderer is helper to ease creating renderers for `html/template` and `text/template` packages.
// Example usage:
//
//	app.Renderer = &relay.TemplateRenderer{
//		Template: template.Must(template.ParseGlob("views/*.html")),
//	}
type TemplateRenderer struct {
	Template interface {
		ExecuteTemplate(wr io.Writer, name string, data any) error
	}
}

// Render renders the template with given data.
func (t *TemplateRenderer) Render(_ Context, w io.Writer, name string, data any) error {
	return t.Template.ExecuteTemplate(w, name, data)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(c Context, w io.Writer, name string, data any) error

func (f RendererFunc) Render(c Context, w io.Writer, name string, data any) error {
	return f(c, w, name, data)
}
