package relay

import (
	"errors"
	"sync/atomic"
)

// ErrNextCalledTwice is returned when a middleware invokes next more than once.
var ErrNextCalledTwice = errors.New("relay: next() called multiple times")

// Explicitly 一个承上启下的中间件
func Explicitly(c Context, next HandlerFunc) error {
	return next(c)
}

// Compose 将多个中间件合并为一个，在执行期间，会自上而下传递请求，
// 之后过滤并逆序返回响应，因此实现了友好且符合直观思维的洋葱模型。
func Compose(middleware ...MiddlewareFunc) MiddlewareFunc {
	l := len(middleware)
	if l == 0 {
		return nil
	}
	if l == 1 {
		return middleware[0]
	}
	return func(c Context, next HandlerFunc) error {
		var index int32 = -1
		var dispatch func(int) error
		dispatch = func(i int) error {
			if int32(i) <= atomic.LoadInt32(&index) {
				return ErrNextCalledTwice
			}
			atomic.StoreInt32(&index, int32(i))
			if i == len(middleware) {
				return next(c)
			}
			return middleware[i](c, func(c Context) error {
				return dispatch(i + 1)
			})
		}
		return dispatch(0)
	}
}

// runPipeline runs the resolved middleware around final. Each layer gets
// the arguments of its reference and a next continuation that advances
// the cursor by one; a layer that returns without calling next
// short-circuits the layers after it and the action.
func runPipeline(c Context, layers []Middleware, refs []Ref, final HandlerFunc) error {
	if len(layers) == 0 {
		return final(c)
	}
	index := -1
	var dispatch func(i int, c Context) error
	dispatch = func(i int, c Context) error {
		if i <= index {
			return ErrNextCalledTwice
		}
		index = i
		if i == len(layers) {
			return final(c)
		}
		return layers[i].Handle(c, func(c Context) error {
			return dispatch(i+1, c)
		}, refs[i].Args...)
	}
	return dispatch(0, c)
}
