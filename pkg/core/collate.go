package core

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Collate orders view keys the way CouchDB does: null, false, true,
// numbers, strings, arrays, objects. Arrays compare element-wise and
// objects by their sorted key/value pairs. Strings compare bytewise.
func Collate(a, b any) int {
	ra, rb := collationRank(a), collationRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankFalse, rankTrue, rankNull:
		return 0
	case rankNumber:
		return cmp.Compare(toFloat(a), toFloat(b))
	case rankString:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	case rankArray:
		va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
		for i := 0; i < va.Len() && i < vb.Len(); i++ {
			if c := Collate(va.Index(i).Interface(), vb.Index(i).Interface()); c != 0 {
				return c
			}
		}
		return cmp.Compare(va.Len(), vb.Len())
	default:
		ka, kb := objectPairs(a), objectPairs(b)
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := cmp.Compare(ka[i].key, kb[i].key); c != 0 {
				return c
			}
			if c := Collate(ka[i].value, kb[i].value); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(ka), len(kb))
	}
}

const (
	rankNull = iota
	rankFalse
	rankTrue
	rankNumber
	rankString
	rankArray
	rankObject
)

func collationRank(v any) int {
	switch x := v.(type) {
	case nil:
		return rankNull
	case bool:
		if x {
			return rankTrue
		}
		return rankFalse
	case string:
		return rankString
	case json.Number:
		return rankNumber
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rankNumber
	case reflect.Slice, reflect.Array:
		return rankArray
	case reflect.Map:
		return rankObject
	}
	return rankString
}

func toFloat(v any) float64 {
	if n, ok := v.(json.Number); ok {
		f, _ := n.Float64()
		return f
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	case rv.CanFloat():
		return rv.Float()
	}
	return 0
}

type pair struct {
	key   string
	value any
}

func objectPairs(v any) []pair {
	rv := reflect.ValueOf(v)
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{key: fmt.Sprint(iter.Key().Interface()), value: iter.Value().Interface()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return pairs
}
