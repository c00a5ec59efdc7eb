/*
Package subscribers turns dispatched events into stored rows.

Each subscriber attaches to one publisher, creates its subscriptions in
Init and persists one row per matching event through storage.Store:

	Subscriber            Publisher     Subscription
	file_events           inotify       one per file_paths pattern, tagged
	                                    with its category
	process_events        audit         assembled events, execve
	socket_events         audit         assembled events, bind and connect
	fim_events            audit         assembled events, file syscalls
	process_snapshots     process       every start and exit
	connection_snapshots  connections   every socket, or listening only

Init runs again whenever the bus reloads a subscriber, so FileEvents picks
up new path categories after SetPaths followed by Bus.Reload and
Bus.Configure.

FimEvents keeps a descriptor table per process so read, write and close
calls resolve to the path that was opened. Only calls that can change a
file are stored unless ShowAccesses is set.

Callback errors (a failed store write, an undecodable sockaddr) go back to
the bus, which logs and counts them without stopping dispatch.
*/
package subscribers
