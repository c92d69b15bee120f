package observer

import (
	"math"
	"reflect"
)

// sameValue reports whether writing b over a is a no-op. NaN equals NaN;
// comparable values compare with ==; maps, slices and funcs compare by the
// identity of what they point at. A reactive container equals the raw map
// or slice it was built from.
func sameValue(a, b any) bool {
	switch x := a.(type) {
	case *Object:
		if m, ok := b.(map[string]any); ok {
			return x.raw != nil && sameRef(x.raw, m)
		}
	case *Array:
		if s, ok := b.([]any); ok {
			return x.raw != nil && sameRef(x.raw, s)
		}
	case float64:
		if y, ok := b.(float64); ok && math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
	case float32:
		if y, ok := b.(float32); ok && math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return safeEqual(a, b)
	}
	return sameRef(a, b)
}

// safeEqual guards against interface-typed struct fields holding
// incomparable values, which make == panic at run time.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func sameRef(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != vb.Kind() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}

func isReactive(v any) bool {
	switch v.(type) {
	case *Object, *Array:
		return true
	}
	return false
}
