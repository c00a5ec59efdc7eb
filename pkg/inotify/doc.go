/*
Package inotify publishes filesystem changes under subscribed paths.

The publisher wraps an fsnotify watcher. Subscriptions name a path, which
may contain '%' (one segment) and '%%' (recursive) wildcards. Configure
expands every subscription against the filesystem once, deduplicates the
resulting directories and reconciles the watch set:

	┌───────────────────────┐     ┌──────────────┐     ┌─────────────┐
	│ SubscriptionContext   │────▶│ pattern.     │────▶│ desired set │
	│ /var/www/%%           │     │ Expand       │     │ (deduped)   │
	│ /etc/                 │     └──────────────┘     └──────┬──────┘
	└───────────────────────┘                                 │ syncWatches
	                                                          ▼
	                                                   ┌─────────────┐
	                                                   │ fsnotify    │
	                                                   │ Watcher     │
	                                                   └──────┬──────┘
	                                                          │ Run
	                                                          ▼
	                                                   EventContext{Path, Action}

# Matching

ShouldFire checks the subscription's action mask first. The global
exclusion set then wins over any inclusion. Finally the event path must be
contained by one of the subscription's resolved roots. A trailing '/'
restricts the subscription to the directory itself and its direct
children.

Directories created under a recursive root are watched as soon as their
CREATED event is seen. Directories created under a segment wildcard are
only picked up on the next Configure.

# Actions

fsnotify operations map to CREATED, UPDATED, DELETED, MOVED_FROM and
ATTRIBUTES_MODIFIED. A combined operation yields one event per action.
*/
package inotify
