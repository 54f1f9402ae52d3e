package qdrant

import (
	"testing"

	"github.com/jllopis/agis/pkg/memory"
	pb "github.com/qdrant/go-client/qdrant"
)

func TestStoreImplementsInterface(t *testing.T) {
	var _ memory.VectorStore = (*Store)(nil)
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]any{
		"role":  "analyst",
		"text":  "demand is strong",
		"score": 0.5,
		"count": 3,
		"final": true,
	}
	out := fromPayload(toPayload(in))

	if out["role"] != "analyst" || out["text"] != "demand is strong" {
		t.Errorf("string values lost: %v", out)
	}
	if out["score"] != 0.5 {
		t.Errorf("double lost: %v", out["score"])
	}
	if out["count"] != int64(3) {
		t.Errorf("int lost: %v", out["count"])
	}
	if out["final"] != true {
		t.Errorf("bool lost: %v", out["final"])
	}
}

func TestPointID(t *testing.T) {
	if got := pointID(&pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}}); got != "abc" {
		t.Errorf("expected uuid id, got %s", got)
	}
	if got := pointID(&pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 7}}); got != "7" {
		t.Errorf("expected numeric id, got %s", got)
	}
}
