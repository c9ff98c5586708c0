// Package codec converts cluster-rankings and reconciliation results to and
// from their exchange representations: JSON documents such as
// [1,[2,3],4] and YAML sequences of the same shape.
//
// Decoding checks shape only. Identifier rules (positive, unique, non-empty
// tie groups) are enforced by domain.ClusterRanking.Validate.
package codec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
)

// DecodeRanking parses one JSON ranking document. Each top-level element
// must be an integer or an array of integers. An empty or null document
// yields domain.ErrMissingRanking; any other shape problem yields
// domain.ErrMalformedRanking. Errors are *domain.RankingError values with
// no side set.
func DecodeRanking(data []byte) (domain.ClusterRanking, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, domain.NewRankingError("", -1, domain.ErrMissingRanking)
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, domain.NewRankingError("", -1,
			fmt.Errorf("%w: document is not valid JSON", domain.ErrMalformedRanking))
	}

	doc := gjson.ParseBytes(trimmed)
	if doc.Type == gjson.Null {
		return nil, domain.NewRankingError("", -1, domain.ErrMissingRanking)
	}
	if !doc.IsArray() {
		return nil, domain.NewRankingError("", -1,
			fmt.Errorf("%w: expected an array, got %s", domain.ErrMalformedRanking, doc.Type))
	}

	elems := doc.Array()
	ranking := make(domain.ClusterRanking, 0, len(elems))
	for pos, el := range elems {
		cluster, err := decodeLevel(el)
		if err != nil {
			return nil, domain.NewRankingError("", pos, err)
		}
		ranking = append(ranking, cluster)
	}
	return ranking, nil
}

func decodeLevel(el gjson.Result) (domain.Cluster, error) {
	if el.IsArray() {
		members := el.Array()
		cluster := make(domain.Cluster, 0, len(members))
		for _, m := range members {
			id, err := decodeID(m)
			if err != nil {
				return nil, err
			}
			cluster = append(cluster, id)
		}
		return cluster, nil
	}

	id, err := decodeID(el)
	if err != nil {
		return nil, err
	}
	return domain.Cluster{id}, nil
}

func decodeID(el gjson.Result) (domain.ObjectID, error) {
	if el.Type != gjson.Number {
		return 0, fmt.Errorf("%w: %s is not an object identifier", domain.ErrMalformedRanking, el.Raw)
	}
	n, err := strconv.Atoi(el.Raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", domain.ErrMalformedRanking, el.Raw)
	}
	return domain.ObjectID(n), nil
}

// RankingFromYAML converts a YAML sequence node of the same shape as the
// JSON document into a ranking. A missing or null node yields
// domain.ErrMissingRanking.
func RankingFromYAML(node *yaml.Node) (domain.ClusterRanking, error) {
	if node == nil || node.Kind == 0 {
		return nil, domain.NewRankingError("", -1, domain.ErrMissingRanking)
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, domain.NewRankingError("", -1, domain.ErrMissingRanking)
	}
	if node.Kind != yaml.SequenceNode {
		return nil, domain.NewRankingError("", -1,
			fmt.Errorf("%w: expected a sequence at line %d", domain.ErrMalformedRanking, node.Line))
	}

	ranking := make(domain.ClusterRanking, 0, len(node.Content))
	for pos, el := range node.Content {
		var cluster domain.Cluster
		switch el.Kind {
		case yaml.SequenceNode:
			cluster = make(domain.Cluster, 0, len(el.Content))
			for _, m := range el.Content {
				id, err := yamlID(m)
				if err != nil {
					return nil, domain.NewRankingError("", pos, err)
				}
				cluster = append(cluster, id)
			}
		default:
			id, err := yamlID(el)
			if err != nil {
				return nil, domain.NewRankingError("", pos, err)
			}
			cluster = domain.Cluster{id}
		}
		ranking = append(ranking, cluster)
	}
	return ranking, nil
}

func yamlID(n *yaml.Node) (domain.ObjectID, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!int" {
		return 0, fmt.Errorf("%w: %q at line %d is not an object identifier",
			domain.ErrMalformedRanking, n.Value, n.Line)
	}
	var id int
	if err := n.Decode(&id); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedRanking, err)
	}
	return domain.ObjectID(id), nil
}
