package flowsim

// templates.go holds the built-in starter diagrams a lesson can begin from

import (
	"fmt"

	"golang.org/x/exp/slices"
)

var templateOrder []string = []string{"simple-api", "caching-pattern", "microservices", "msg-queue"}

func chain(prefix string, nodeIDs ...string) []Edge {
	edges := make([]Edge, 0, len(nodeIDs)-1)
	for idx := 1; idx < len(nodeIDs); idx++ {
		edges = append(edges, Edge{ID: fmt.Sprintf("%s-%d", prefix, idx), Source: nodeIDs[idx-1], Target: nodeIDs[idx]})
	}
	return edges
}

var builtinTemplates map[string]Diagram = map[string]Diagram{
	"simple-api": {
		Name:        "simple-api",
		Title:       "Simple API Request",
		Description: "A basic flow showing a client making a request to an API which queries a database.",
		Difficulty:  "beginner",
		Nodes: []Node{
			{ID: "t1-1", Kind: ClientKind, Label: "Mobile App"},
			{ID: "t1-2", Kind: APIKind, Label: "REST API", Latency: 100},
			{ID: "t1-3", Kind: DatabaseKind, Label: "Main DB", Latency: 500},
		},
		Edges: chain("e1", "t1-1", "t1-2", "t1-3"),
	},
	"caching-pattern": {
		Name:        "caching-pattern",
		Title:       "Cache-Aside Pattern",
		Description: "Demonstrates a caching layer. Requests hit the cache first (fast), falling back to DB (slow) only on misses.",
		Difficulty:  "intermediate",
		Nodes: []Node{
			{ID: "t2-1", Kind: ClientKind, Label: "Client"},
			{ID: "t2-2", Kind: APIKind, Label: "API Gateway"},
			{ID: "t2-3", Kind: CacheKind, Label: "Redis Cache", Latency: 10},
			{ID: "t2-4", Kind: DatabaseKind, Label: "SQL Database", Latency: 800},
		},
		Edges: []Edge{
			{ID: "e2-1", Source: "t2-1", Target: "t2-2"},
			{ID: "e2-2", Source: "t2-2", Target: "t2-3"},
			{ID: "e2-3", Source: "t2-2", Target: "t2-4"},
		},
	},
	"microservices": {
		Name:        "microservices",
		Title:       "Microservices Chain",
		Description: "A chain of dependent services. Shows how latency propagates through the system.",
		Difficulty:  "advanced",
		Nodes: []Node{
			{ID: "t3-1", Kind: ClientKind, Label: "Web Client"},
			{ID: "t3-2", Kind: APIKind, Label: "API Gateway"},
			{ID: "t3-3", Kind: ServiceKind, Label: "Auth Service", Latency: 200},
			{ID: "t3-4", Kind: ServiceKind, Label: "Order Service", Latency: 300},
			{ID: "t3-5", Kind: DatabaseKind, Label: "Order DB", Latency: 600},
		},
		Edges: []Edge{
			{ID: "e3-1", Source: "t3-1", Target: "t3-2"},
			{ID: "e3-2", Source: "t3-2", Target: "t3-3"},
			{ID: "e3-3", Source: "t3-2", Target: "t3-4"},
			{ID: "e3-4", Source: "t3-4", Target: "t3-5"},
		},
	},
	"msg-queue": {
		Name:        "msg-queue",
		Title:       "Async Message Queue",
		Description: "Decoupled architecture using a message queue. The API responds quickly while the worker processes in background.",
		Difficulty:  "advanced",
		Nodes: []Node{
			{ID: "t4-1", Kind: ClientKind, Label: "Client"},
			{ID: "t4-2", Kind: APIKind, Label: "Ingest API", Latency: 50},
			{ID: "t4-3", Kind: QueueKind, Label: "Kafka"},
			{ID: "t4-4", Kind: ServiceKind, Label: "Worker", Latency: 1500},
		},
		Edges: chain("e4", "t4-1", "t4-2", "t4-3", "t4-4"),
	},
}

// TemplateNames lists the built-in templates in gallery order
func TemplateNames() []string {
	return slices.Clone(templateOrder)
}

// Template returns a copy of a built-in diagram, which the caller may modify freely
func Template(name string) (*Diagram, error) {
	dgm, present := builtinTemplates[name]
	if !present {
		return nil, fmt.Errorf("template %q: %w", name, ErrUnknownTemplate)
	}
	return dgm.Clone(), nil
}
