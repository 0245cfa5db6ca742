package utils

import (
	"fmt"
	"sort"
	"sync"
)

// World is a set of in-process ranks sharing a mailbox. Each rank runs in
// its own goroutine and talks to the others only through collective calls.
type World struct {
	NP      int
	mb      *MailBox[any]
	barrier *Barrier
}

// Comm is one rank's handle on a World
type Comm struct {
	world *World
	rank  int
}

// Envelope addresses a message to a rank
type Envelope[M any] struct {
	To  int
	Msg M
}

func NewWorld(NP int) *World {
	if NP < 1 {
		panic(fmt.Sprintf("invalid number of ranks %d", NP))
	}
	return &World{
		NP:      NP,
		mb:      NewMailBox[any](NP),
		barrier: NewBarrier(NP),
	}
}

func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.NP {
		panic(fmt.Sprintf("rank %d out of range [0,%d)", rank, w.NP))
	}
	return &Comm{world: w, rank: rank}
}

// SerialComm is a single rank world
func SerialComm() *Comm { return NewWorld(1).Comm(0) }

// RunRanks runs fn on NP ranks concurrently and waits for all of them.
func RunRanks(NP int, fn func(c *Comm)) {
	var (
		w  = NewWorld(NP)
		wg sync.WaitGroup
	)
	for np := 0; np < NP; np++ {
		wg.Add(1)
		go func(np int) {
			fn(w.Comm(np))
			wg.Done()
		}(np)
	}
	wg.Wait()
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.world.NP }

func (c *Comm) IsSerial() bool { return c.world.NP == 1 }

func (c *Comm) Barrier() {
	if c.world.NP > 1 {
		c.world.barrier.Wait()
	}
}

// Exchange is collective: every rank must call it, in the same order relative
// to other collectives. It returns the messages addressed to this rank, in no
// particular order.
func Exchange[M any](c *Comm, out []Envelope[M]) (in []M) {
	for _, e := range out {
		c.world.mb.PostMessage(c.rank, e.To, e.Msg)
	}
	return deliver[M](c)
}

// deliver completes a round of posted messages. Collective.
func deliver[M any](c *Comm) (in []M) {
	var (
		w = c.world
	)
	w.mb.DeliverMyMessages(c.rank)
	c.Barrier()
	w.mb.ReceiveMyMessages(c.rank)
	for _, msg := range w.mb.ReceiveMsgQs[c.rank].Cells() {
		in = append(in, msg.(M))
	}
	w.mb.ClearMyMessages(c.rank)
	c.Barrier()
	return
}

type rankValue[V any] struct {
	From int
	V    V
}

// AllGather returns every rank's value indexed by rank
func AllGather[V any](c *Comm, v V) (all []V) {
	c.world.mb.PostMessageToAll(c.rank, rankValue[V]{From: c.rank, V: v})
	in := deliver[rankValue[V]](c)
	sort.Slice(in, func(a, b int) bool { return in[a].From < in[b].From })
	all = make([]V, len(in))
	for i, rv := range in {
		all[i] = rv.V
	}
	return
}

// AllReduceSum sums in rank order so every rank gets the identical result
func (c *Comm) AllReduceSum(v float64) (sum float64) {
	for _, x := range AllGather(c, v) {
		sum += x
	}
	return
}

func (c *Comm) AllReduceMax(v float64) (mx float64) {
	all := AllGather(c, v)
	mx = all[0]
	for _, x := range all[1:] {
		mx = max(mx, x)
	}
	return
}

func (c *Comm) AllReduceOr(b bool) bool {
	for _, x := range AllGather(c, b) {
		if x {
			return true
		}
	}
	return false
}

type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Barrier) Wait() {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}
