// Package model holds the JSON bodies shared by the HTTP and TCP transports.
package model

import (
	"distritree/pkg/common"
	"distritree/pkg/core"
	"distritree/pkg/core/serialize"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// InsertRequest uses pointers so a missing field can be told apart from a
// zero key.
type InsertRequest struct {
	Key   *common.KeyType `json:"key"`
	Value *string         `json:"value"`
}

type Location struct {
	NodeID   common.NodeID `json:"node_id"`
	RecordID string        `json:"record_id"`
	Shard    int           `json:"shard"`
}

type InsertResponse struct {
	Status   string          `json:"status"`
	Location Location        `json:"location"`
	Replaced bool            `json:"replaced"`
	IOCost   int             `json:"io_cost"`
	Path     []common.NodeID `json:"path_taken"`
	Tree     *serialize.Node `json:"tree_structure"`
}

type SearchResult struct {
	Key    common.KeyType `json:"key"`
	Value  string         `json:"value"`
	NodeID common.NodeID  `json:"node_id"`
}

type SearchResponse struct {
	Result       *SearchResult   `json:"result"`
	Found        bool            `json:"found"`
	IOCost       int             `json:"io_cost"`
	PathTaken    []common.NodeID `json:"path_taken"`
	VisitedNodes []common.NodeID `json:"visited_nodes"`
	Method       string          `json:"method"`
}

func NewSearchResponse(out core.SearchOutcome) SearchResponse {
	resp := SearchResponse{
		Found:        out.Found,
		IOCost:       out.IOCost,
		PathTaken:    nonNil(out.Path),
		VisitedNodes: nonNil(out.Path),
		Method:       out.Method,
	}
	if out.Found {
		resp.Result = &SearchResult{
			Key:    out.Entry.Key,
			Value:  string(out.Entry.Value),
			NodeID: out.Entry.NodeID,
		}
	}
	return resp
}

type RangeResponse struct {
	Results      []common.KeyType `json:"results"`
	IOCost       int              `json:"io_cost"`
	PathTaken    []common.NodeID  `json:"path_taken"`
	VisitedNodes []common.NodeID  `json:"visited_nodes"`
	Method       string           `json:"method"`
}

func NewRangeResponse(out core.RangeOutcome) RangeResponse {
	keys := make([]common.KeyType, 0, len(out.Entries))
	for _, e := range out.Entries {
		keys = append(keys, e.Key)
	}
	return RangeResponse{
		Results:      keys,
		IOCost:       out.IOCost,
		PathTaken:    nonNil(out.Path),
		VisitedNodes: nonNil(out.Path),
		Method:       out.Method,
	}
}

type ClearResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewClearResponse() ClearResponse {
	return ClearResponse{
		Status:  "success",
		Message: "All data cleared from the archive and the B+ Tree",
	}
}

// NewInsertResponse flattens an insert outcome into its wire form.
func NewInsertResponse(out core.InsertOutcome) InsertResponse {
	return InsertResponse{
		Status: "success",
		Location: Location{
			NodeID:   out.Location.NodeID,
			RecordID: out.RecordID,
			Shard:    out.Shard,
		},
		Replaced: out.Replaced,
		IOCost:   out.IOCost,
		Path:     nonNil(out.Path),
		Tree:     out.Tree,
	}
}

func nonNil(ids []common.NodeID) []common.NodeID {
	if ids == nil {
		return []common.NodeID{}
	}
	return ids
}
