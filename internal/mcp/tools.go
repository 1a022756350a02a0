package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/service"
)

// Tool names.
const (
	ToolClassifyObservation = "classify_observation"
	ToolComputeBMI          = "compute_bmi"
	ToolRecommend           = "recommend"
	ToolSearchCatalog       = "search_catalog"
	ToolEvaluateRule        = "evaluate_rule"
	ToolGetProtocolNode     = "get_protocol_node"
)

// ToolNames lists every registered tool.
var ToolNames = []string{
	ToolClassifyObservation,
	ToolComputeBMI,
	ToolRecommend,
	ToolSearchCatalog,
	ToolEvaluateRule,
	ToolGetProtocolNode,
}

// ClassifyInput is the argument of classify_observation.
type ClassifyInput struct {
	Observation domain.Observation `json:"observation" jsonschema:"the observation; omitted values are treated as not measured"`
}

// ClassifyOutput lists the findings in canonical order with the worst severity and BMI.
type ClassifyOutput struct {
	Findings    []domain.Finding `json:"findings"`
	MaxSeverity domain.Severity  `json:"maxSeverity,omitempty"`
	BMI         *float64         `json:"bmi,omitempty"`
	BMIBand     domain.BMIBand   `json:"bmiBand,omitempty"`
}

// BMIInput is the argument of compute_bmi.
type BMIInput struct {
	WeightKg float64 `json:"weightKg" jsonschema:"body weight in kilograms"`
	HeightCm float64 `json:"heightCm" jsonschema:"height in centimetres"`
}

// BMIOutput is the computed BMI and its band.
type BMIOutput struct {
	BMI  float64        `json:"bmi"`
	Band domain.BMIBand `json:"band"`
}

// RecommendInput selects recommendations by key, or by findings when the key is empty.
type RecommendInput struct {
	Key      string               `json:"key,omitempty" jsonschema:"recommendation key of a terminal decision node"`
	Findings []domain.FindingCode `json:"findings,omitempty" jsonschema:"finding codes, used when key is empty"`
}

// RecommendOutput holds the recommended items in table order; never nil.
type RecommendOutput struct {
	Items []domain.RecommendationItem `json:"items"`
}

// SearchInput is the argument of search_catalog.
type SearchInput struct {
	Term string `json:"term" jsonschema:"substring of a trade or scientific name"`
}

// SearchOutput holds matching catalog entries in catalog order.
type SearchOutput struct {
	Results []domain.MedicineCatalogEntry `json:"results"`
}

// EvaluateRuleInput names one classification rule and the observation to test.
type EvaluateRuleInput struct {
	Code        domain.FindingCode `json:"code" jsonschema:"finding code of the rule to evaluate"`
	Observation domain.Observation `json:"observation"`
}

// EvaluateRuleOutput reports whether the rule fired and, if so, its severity.
type EvaluateRuleOutput struct {
	Code     domain.FindingCode `json:"code"`
	Fired    bool               `json:"fired"`
	Severity domain.Severity    `json:"severity,omitempty"`
}

// NodeInput is the argument of get_protocol_node; an empty id means the start node.
type NodeInput struct {
	ID string `json:"id,omitempty" jsonschema:"decision node id"`
}

// NodeOutput is one decision tree node.
type NodeOutput struct {
	Node domain.DecisionNode `json:"node"`
}

func (s *Server) classifyObservation(ctx context.Context, _ *mcp.CallToolRequest, in ClassifyInput) (*mcp.CallToolResult, ClassifyOutput, error) {
	if err := in.Observation.Validate(); err != nil {
		return nil, ClassifyOutput{}, err
	}

	findings := s.engine.Classifier.Classify(in.Observation)
	bmi, band := service.ObservationBMI(in.Observation)

	s.logger.WithFields(logrus.Fields{
		"tool":     ToolClassifyObservation,
		"findings": len(findings),
	}).Debug("Tool call handled")

	return nil, ClassifyOutput{
		Findings:    findings.Sorted(),
		MaxSeverity: findings.MaxSeverity(),
		BMI:         bmi,
		BMIBand:     band,
	}, nil
}

func (s *Server) computeBMI(ctx context.Context, _ *mcp.CallToolRequest, in BMIInput) (*mcp.CallToolResult, BMIOutput, error) {
	value, ok := service.BMI(&in.WeightKg, &in.HeightCm)
	if !ok {
		return nil, BMIOutput{}, domain.NewValidationError("weightKg/heightCm", "positive weight and height are required", nil)
	}
	return nil, BMIOutput{BMI: value, Band: service.ClassifyBMI(value)}, nil
}

func (s *Server) recommend(ctx context.Context, _ *mcp.CallToolRequest, in RecommendInput) (*mcp.CallToolResult, RecommendOutput, error) {
	var items []domain.RecommendationItem
	switch {
	case in.Key != "":
		items = s.engine.Recommender.Recommend(in.Key)
	case len(in.Findings) > 0:
		set := domain.NewFindingSet()
		for _, code := range in.Findings {
			if !code.IsValid() {
				return nil, RecommendOutput{}, domain.NewValidationError("findings", fmt.Sprintf("unknown finding code %q", code), code)
			}
			set.Add(domain.Finding{Code: code})
		}
		items = s.engine.Recommender.RecommendForFindings(set)
	default:
		return nil, RecommendOutput{}, domain.NewValidationError("key", "either key or findings is required", nil)
	}

	if items == nil {
		items = []domain.RecommendationItem{}
	}
	return nil, RecommendOutput{Items: items}, nil
}

func (s *Server) searchCatalog(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return nil, SearchOutput{Results: s.engine.SearchCatalog(in.Term)}, nil
}

func (s *Server) evaluateRule(ctx context.Context, _ *mcp.CallToolRequest, in EvaluateRuleInput) (*mcp.CallToolResult, EvaluateRuleOutput, error) {
	if err := in.Observation.Validate(); err != nil {
		return nil, EvaluateRuleOutput{}, err
	}
	finding, fired, err := s.engine.Classifier.EvaluateRule(in.Code, in.Observation)
	if err != nil {
		return nil, EvaluateRuleOutput{}, err
	}

	out := EvaluateRuleOutput{Code: in.Code, Fired: fired}
	if fired {
		out.Severity = finding.Severity
	}
	return nil, out, nil
}

func (s *Server) getProtocolNode(ctx context.Context, _ *mcp.CallToolRequest, in NodeInput) (*mcp.CallToolResult, NodeOutput, error) {
	graph := s.engine.Navigator.Graph()
	id := in.ID
	if id == "" {
		id = graph.StartID
	}
	node, ok := graph.Node(id)
	if !ok {
		return nil, NodeOutput{}, fmt.Errorf("node %q: %w", id, domain.ErrUnknownNode)
	}
	return nil, NodeOutput{Node: node}, nil
}
