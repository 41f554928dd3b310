// Package cacheepoch implements the cache-bucket math shared by the
// sender and the relational store.
package cacheepoch

import "time"

// unixEpochZero is the origin every cache bucket is measured from.
var unixEpochZero = time.Unix(0, 0).UTC()

// Bucket computes the cache_epoch and valid_until for a request made
// at requestTS against a plugin whose effective shelf life is
// shelfLife:
//
//   - shelfLife == nil: cache forever. epoch = 0, validUntil = the max
//     representable time.
//   - *shelfLife == 0: never cache. epoch = nil, validUntil = requestTS.
//   - *shelfLife > 0: epoch = floor((requestTS-0)/shelfLife),
//     validUntil = (epoch+1)*shelfLife after the Unix epoch.
func Bucket(requestTS time.Time, shelfLife *time.Duration) (epoch *int64, validUntil time.Time) {
	switch {
	case shelfLife == nil:
		zero := int64(0)
		return &zero, time.Unix(1<<62, 0).UTC()
	case *shelfLife == 0:
		return nil, requestTS
	default:
		elapsed := requestTS.Sub(unixEpochZero)
		k := int64(elapsed / *shelfLife)
		validUntil = unixEpochZero.Add(time.Duration(k+1) * *shelfLife)
		return &k, validUntil
	}
}
