// Package recorder keeps the trail of request/response events produced by
// dispatch, grouped by the mock that served them.
//
// Each registered mock owns a Log. Dispatch appends to the Log it captured
// when the request entered, so a request that is still in flight when its
// mock is removed is recorded against the log it started with. Requests no
// mock accepted are kept in the UnmatchedBucket.
//
// Removing a mock with skipReport=false retires its log: the events are
// returned once more by the next peek covering that name and then dropped.
// Removing with skipReport=true discards the log immediately.
package recorder
