// Package pool implements the per-host persistent connection pool: a
// fixed-capacity ring of already-open socket descriptors that pkg/agent
// rents from and returns to instead of reconnecting on every dispatch, for
// mirrors configured with conn=pconn/persistent.
//
// Rent reports one of three outcomes: a live parked descriptor ready for
// immediate use, "no parked descriptor but there is still headroom — the
// caller must connect fresh", or "capacity reached, do not use the pool for
// this attempt". Return either parks the descriptor for reuse or closes it
// outright if the pool has been shut down or resized smaller than its
// current contents.
package pool
