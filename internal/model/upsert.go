package model

// Key extracts one key field from a record. Returning nil (or a nil
// *string) marks the key as absent.
type Key[T any] func(T) any

// Upsert merges candidates into existing: for each candidate, the first
// existing record whose key fields all equal the candidate's is replaced in
// place; otherwise the candidate is appended. Two absent keys are equal.
func Upsert[T any](existing []T, candidates []T, keys ...Key[T]) []T {
	for _, c := range candidates {
		idx := -1
		for i, e := range existing {
			if keysMatch(e, c, keys) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			existing[idx] = c
		} else {
			existing = append(existing, c)
		}
	}
	return existing
}

func keysMatch[T any](a, b T, keys []Key[T]) bool {
	for _, k := range keys {
		if !KeyEqual(k(a), k(b)) {
			return false
		}
	}
	return true
}

// KeyEqual compares two key values, treating two absent values as equal.
func KeyEqual(a, b any) bool {
	aa, ba := absent(a), absent(b)
	if aa || ba {
		return aa && ba
	}
	if ap, ok := a.(*string); ok {
		a = *ap
	}
	if bp, ok := b.(*string); ok {
		b = *bp
	}
	return a == b
}

func absent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *string:
		return x == nil
	}
	return false
}

// ByTarget keys popup registrations by aTarget.
func ByTarget(p PopupRegistration) any { return p.ATarget }

// ByFormAction keys captured forms by formAction.
func ByFormAction(f RawForm) any { return f.FormAction }
