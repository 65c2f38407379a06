package respmatch

import (
	"regexp"
	"time"

	"github.com/sable-mc/guildbridge/internal/ttlcache"
)

type cacheKey struct {
	family Family
	abort  bool
	target string
	rank   string
}

// Library memoizes compiled patterns per (family, params). Each bridge owns
// its own Library so per-guild instances stay independent.
type Library struct {
	cache *ttlcache.Cache[cacheKey, *regexp.Regexp]
}

func NewLibrary() *Library {
	return &Library{cache: ttlcache.NewBounded[cacheKey, *regexp.Regexp](15*time.Minute, 200)}
}

func (l *Library) Success(f Family, p Params) *regexp.Regexp {
	k := cacheKey{family: f, target: p.Target, rank: p.Rank}
	return l.cache.Ensure(k, func() *regexp.Regexp { return Success(f, p) })
}

func (l *Library) Abort(f Family, p Params) *regexp.Regexp {
	k := cacheKey{family: f, abort: true, target: p.Target, rank: p.Rank}
	return l.cache.Ensure(k, func() *regexp.Regexp { return Abort(f, p) })
}
