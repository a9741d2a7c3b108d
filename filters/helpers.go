package filters

import "github.com/wudi/pdfedit/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(r raw.Resolver, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := raw.Lookup(r, dict, "Filter")
	if !ok {
		return names, params
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := raw.NameValue(r, item); ok {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}
	pObj, ok := raw.Lookup(r, dict, "DecodeParms")
	if !ok {
		return names, params
	}
	switch p := pObj.(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			d, _ := raw.DictValue(r, item)
			params = append(params, d)
		}
	}
	return names, params
}
