/*
Package types defines the rows lookout persists and serves.

Subscribers turn event contexts into typed events (FileEvent,
ProcessEvent, SocketEvent, FimEvent, ProcessSnapshot,
ConnectionSnapshot). Each
typed event renders itself as a Row, a flat column-to-string map in the
shape a table generate(context) call returns. The store wraps each Row in
a Record that carries its event id and event time.

# Rows

	file_events           target_path, category, action, time
	process_events        audit_id, pid, parent, uid, euid, gid, path,
	                      cwd, cmdline, syscall, success, time
	socket_events         audit_id, action, pid, path, family,
	                      remote_address, remote_port, local_address,
	                      local_port, success, time
	fim_events            audit_id, pid, uid, path, target_path, action,
	                      time
	process_snapshots     action, pid, parent, name, path, cmdline, user, time
	connection_snapshots  action, pid, family, protocol, local_address,
	                      local_port, remote_address, remote_port, state, time

Times are rendered as unix seconds. Booleans are "1" or "0".

# Bounds

Bounds selects records by event time for Generate. A zero Start or End
leaves that side open.
*/
package types
