package filters

import "github.com/wudi/docseal/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. The params slice is aligned with the names; a missing or null
// entry yields nil. doc may be nil when the dictionary holds no references.
func ExtractFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj := doc.Resolve(dict.Get("Filter"))
	if filterObj == nil {
		filterObj = doc.Resolve(dict.Get("F"))
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := doc.Resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	pObj := dict.Get("DecodeParms")
	if pObj == nil {
		pObj = dict.Get("DP")
	}
	params = make([]*raw.DictObj, len(names))
	switch p := doc.Resolve(pObj).(type) {
	case *raw.DictObj:
		params[0] = p
	case *raw.ArrayObj:
		for i := 0; i < len(names) && i < p.Len(); i++ {
			params[i], _ = doc.Resolve(p.Get(i)).(*raw.DictObj)
		}
	}
	return names, params
}
