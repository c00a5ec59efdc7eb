/*
Package procmon publishes process and socket activity by polling.

Two publishers share one pattern. Each Run waits one interval, reads a
snapshot through gopsutil and diffs it against the previous one:

	process      key (pid, create time)      started / exited
	connections  key (pid, family, protocol, local, remote)
	                                          opened / closed

The first snapshot is a baseline and produces nothing. A process whose
pid is reused shows as one exit and one start because the create time
differs. A socket that only changes state (ESTABLISHED to TIME_WAIT) is
not reported.

Listers are injectable so the diffing can be tested without touching the
host:

	pub := procmon.NewProcessPublisher(5*time.Second, nil) // gopsutil
	pub := procmon.NewProcessPublisher(time.Millisecond, fakeList)
*/
package procmon
