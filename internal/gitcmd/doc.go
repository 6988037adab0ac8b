// Package gitcmd runs the Git pack-protocol engines (upload-pack and
// receive-pack) as subprocesses and relays their byte streams.
//
// A Command never buffers a whole pack: input and output are copied through
// fixed-size buffers, and the subprocess is terminated as soon as either side
// of the relay fails or the caller's context is cancelled.
package gitcmd
