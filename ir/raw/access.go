package raw

// Typed accessors used by the loader and interpreter. Each one resolves
// indirect references through r before inspecting the value.

func DictValue(r Resolver, obj Object) (*DictObj, bool) {
	switch v := r.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func ArrayValue(r Resolver, obj Object) (*ArrayObj, bool) {
	a, ok := r.Resolve(obj).(*ArrayObj)
	return a, ok
}

func StreamValue(r Resolver, obj Object) (*StreamObj, bool) {
	s, ok := r.Resolve(obj).(*StreamObj)
	return s, ok
}

func NameValue(r Resolver, obj Object) (string, bool) {
	n, ok := r.Resolve(obj).(NameObj)
	return n.Val, ok
}

func FloatValue(r Resolver, obj Object) (float64, bool) {
	n, ok := r.Resolve(obj).(NumberObj)
	return n.Float(), ok
}

func IntValue(r Resolver, obj Object) (int, bool) {
	n, ok := r.Resolve(obj).(NumberObj)
	return int(n.Int()), ok
}

func StringValue(r Resolver, obj Object) ([]byte, bool) {
	s, ok := r.Resolve(obj).(StringObj)
	return s.Bytes, ok
}

// Lookup resolves d[key].
func Lookup(r Resolver, d *DictObj, key string) (Object, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	v = r.Resolve(v)
	if _, null := v.(NullObj); null || v == nil {
		return nil, false
	}
	return v, true
}

// Floats converts an array of numbers, skipping nothing: a non-numeric item
// makes the whole conversion fail.
func Floats(r Resolver, obj Object) ([]float64, bool) {
	arr, ok := ArrayValue(r, obj)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		f, ok := FloatValue(r, it)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
