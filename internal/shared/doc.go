// Package shared contains the error taxonomy used across tgqueue.
//
// Every package reports failures by wrapping one of the sentinel errors
// below, so that callers can classify an error without knowing which
// component produced it:
//
//	job, err := q.RunRepeating(cb, 0)
//	if shared.IsValidation(err) {
//	    // bad interval, bad days, wrong callback style...
//	}
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	default:
//	    return http.StatusInternalServerError
//	}
//
// MarkKind attaches a kind to a third-party error while keeping the
// original reachable through errors.Is / errors.As.
package shared
