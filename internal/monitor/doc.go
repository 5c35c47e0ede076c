// Package monitor watches a remote folder for new media and feeds it into the
// transcription queue. Discovered files are tracked in a persistent JSON
// ledger: an id is recorded when its task is submitted and finalized only once
// the task settles, so restarts and capacity rejections never lose work and
// never resubmit finished work.
package monitor
