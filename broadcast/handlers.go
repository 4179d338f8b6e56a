package broadcast

import (
	"context"

	"github.com/golang/glog"

	"github.com/groupwave/corestore/cache"
)

// DefaultHandler builds the Handler spec.md §4.6 and S6 (spec.md §8)
// describe: InvalidateGroupwareCache clears the named caches for exactly
// the listed ids, InvalidateAccessTokens clears only the access_tokens
// cache for the listed ids, ReloadSettings wholesale-clears every cache, and
// the remaining event kinds are logged (their concrete effects — push
// delivery, IP/spam-filter reload — live in protocol adapters outside
// this module's scope).
func DefaultHandler(registry *cache.Registry, onReloadSettings func()) Handler {
	return func(_ context.Context, ev Event) {
		switch ev.Kind {
		case InvalidateGroupwareCache:
			registry.Invalidate(ev.IDs)
		case InvalidateAccessTokens:
			registry.Invalidate(ev.IDs, cache.AccessTokens)
		case ReloadSettings:
			registry.ClearAll()
			if onReloadSettings != nil {
				onReloadSettings()
			}
		case ReloadPushServers:
			glog.V(3).Infof("broadcast: reload push servers for account %d", ev.AccountID)
		case ReloadBlockedIps:
			glog.V(3).Infof("broadcast: reload blocked ips")
		case ReloadSpamFilter:
			glog.V(3).Infof("broadcast: reload spam filter")
		case PushNotification:
			glog.V(4).Infof("broadcast: push notification, %d bytes", len(ev.Payload))
		}
	}
}
