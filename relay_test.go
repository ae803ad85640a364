package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_AppMiddlewareWrapsRouting(t *testing.T) {
	app := New()
	var steps []string
	app.Use(func(c Context, next HandlerFunc) error {
		steps = append(steps, "before route="+c.RouteName())
		err := next(c)
		steps = append(steps, "after route="+c.RouteName())
		return err
	})
	app.GET("/", text("ok")).Name("home")

	rec := perform(app, http.MethodGet, "/")
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, []string{"before route=", "after route=home"}, steps)
}

func TestRelay_AppMiddlewareSeesNotFound(t *testing.T) {
	app := New()
	var seen error
	app.Use(func(c Context, next HandlerFunc) error {
		seen = next(c)
		return seen
	})
	assert.Equal(t, http.StatusNotFound, perform(app, http.MethodGet, "/nope").Code)
	assert.ErrorIs(t, seen, ErrNotFound)
}

func TestDefaultErrorHandler(t *testing.T) {
	app := New()
	app.GET("/teapot", func(c Context) error {
		return NewHTTPError(http.StatusTeapot, "short and stout")
	})
	app.GET("/boom", func(c Context) error { return errors.New("secret detail") })
	app.GET("/map", func(c Context) error {
		return NewHTTPError(http.StatusBadRequest, Map{"field": "name"})
	})
	app.POST("/only-post", func(c Context) error { return ErrMethodNotAllowed })
	app.GET("/late", func(c Context) error {
		_ = c.String(http.StatusAccepted, "partial")
		return errors.New("too late")
	})

	rec := perform(app, http.MethodGet, "/teapot")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())

	rec = perform(app, http.MethodGet, "/teapot", HeaderAccept, MIMEApplicationJSON)
	assert.JSONEq(t, `{"message":"short and stout"}`, rec.Body.String())

	rec = perform(app, http.MethodHead, "/teapot")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = perform(app, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")

	app.Debug = true
	rec = perform(app, http.MethodGet, "/boom")
	assert.Contains(t, rec.Body.String(), "secret detail")
	app.Debug = false

	rec = perform(app, http.MethodGet, "/map")
	assert.JSONEq(t, `{"message":{"field":"name"}}`, rec.Body.String())

	rec = perform(app, http.MethodPost, "/only-post")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get(HeaderAllow))

	rec = perform(app, http.MethodGet, "/late")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}

func TestRelay_ConfigErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	app := New()
	app.SetLogger(NewLogger(&LoggerOptions{Output: &buf}))
	app.GET("/", text("ok")).Middleware("ghost")

	assert.Equal(t, http.StatusInternalServerError, perform(app, http.MethodGet, "/").Code)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `unknown middleware \"ghost\"`)
}

func TestRelay_CustomErrorHandler(t *testing.T) {
	app := New()
	app.ErrorHandler = func(c Context, err error) {
		_ = c.String(http.StatusServiceUnavailable, "custom: "+err.Error())
	}
	rec := perform(app, http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "custom: code=404"))
}

func TestRelay_TerminateErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	app := New()
	app.SetLogger(NewLogger(&LoggerOptions{Output: &buf, Level: ParseLevel("warn")}))
	log := &traceLog{}
	app.Router().Register("t", log.factory("t", func(m *trace) { m.failClose = errors.New("flush failed") }))
	app.GET("/", text("ok")).Middleware("t")

	rec := perform(app, http.MethodGet, "/")
	assert.Equal(t, "ok", rec.Body.String())
	assert.Contains(t, buf.String(), "terminate failed")
	assert.Contains(t, buf.String(), "flush failed")
}

func TestRelay_StartListenerShutdown(t *testing.T) {
	app := New()
	app.ShutdownTimeout = time.Second
	app.GET("/ping", text("pong"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.StartListener(ctx, &http.Server{ReadHeaderTimeout: time.Second}, ln)
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/ping")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRelay_StartServerReportsListenErrors(t *testing.T) {
	app := New()
	err := app.StartServer(context.Background(), &http.Server{Addr: "256.0.0.1:bad"})
	assert.Error(t, err)
}
