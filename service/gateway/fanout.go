package gateway

import "OnlineGate/logger"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout spreads one payload over many client send queues through a
// small worker pool, so broadcasting never runs on the mutation path.
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					// Slow client: drop rather than block the pool.
					c.queue(job.payload)
				}
			}
		}()
	}
	return f
}

// Broadcast enqueues a delivery job. Non-blocking: under sustained
// overload whole jobs are dropped, which only delays presence events,
// never count syncs (those ride per-client subscriptions).
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	select {
	case f.jobs <- fanoutJob{conns: conns, payload: payload}:
	default:
		logger.Warnf("[gateway] fanout queue full, drop broadcast to %d conns", len(conns))
	}
}
