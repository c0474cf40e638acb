package search

import "github.com/poiesic/folio/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace intermediate steps of a query.
type SearchMonitor interface {
	Start(query string)
	AfterSemanticSearch(matches []*core.ChunkMatch)
	BelowMinScore(match *core.ChunkMatch)
	InactiveDocument(doc *core.Document)
	VerbatimHit(result *Result)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                           {}
func (n *noopMonitor) AfterSemanticSearch(_ []*core.ChunkMatch) {}
func (n *noopMonitor) BelowMinScore(_ *core.ChunkMatch)         {}
func (n *noopMonitor) InactiveDocument(_ *core.Document)        {}
func (n *noopMonitor) VerbatimHit(_ *Result)                    {}
func (n *noopMonitor) Finish(_ []*Result)                       {}
