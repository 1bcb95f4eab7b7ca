package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var base = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func vehicle(id primitive.ObjectID, created time.Time) models.Vehicle {
	return models.Vehicle{ID: id, CreatedAt: created}
}

func TestMerge_DeduplicatesByID(t *testing.T) {
	id1, id2, id3 := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	personal := []models.MaintenanceTask{{ID: id1}, {ID: id2, Name: "personal copy"}}
	fleet := []models.MaintenanceTask{{ID: id2, Name: "fleet copy"}, {ID: id3}}

	merged := MergeTasks(personal, fleet)

	assert.Len(t, merged, 3)
	assert.Equal(t, []primitive.ObjectID{id1, id2, id3}, []primitive.ObjectID{merged[0].ID, merged[1].ID, merged[2].ID})
	assert.Equal(t, "personal copy", merged[1].Name, "first occurrence wins")
}

func TestMergeVehicles_NewestFirst(t *testing.T) {
	old := vehicle(primitive.NewObjectID(), base)
	mid := vehicle(primitive.NewObjectID(), base.Add(24*time.Hour))
	recent := vehicle(primitive.NewObjectID(), base.Add(48*time.Hour))

	merged := MergeVehicles([]models.Vehicle{old, recent}, []models.Vehicle{mid})

	assert.Equal(t, []primitive.ObjectID{recent.ID, mid.ID, old.ID},
		[]primitive.ObjectID{merged[0].ID, merged[1].ID, merged[2].ID})
}

func TestMergeLogs_ByServiceDateDescending(t *testing.T) {
	a := models.ServiceLog{ID: primitive.NewObjectID(), Date: base}
	b := models.ServiceLog{ID: primitive.NewObjectID(), Date: base.AddDate(0, 1, 0)}

	merged := MergeLogs([]models.ServiceLog{a}, []models.ServiceLog{b, a})

	assert.Len(t, merged, 2)
	assert.Equal(t, b.ID, merged[0].ID)
	assert.Equal(t, a.ID, merged[1].ID)
}

func TestMerge_EmptyInputs(t *testing.T) {
	merged := MergeVehicles(nil, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestSelectActive(t *testing.T) {
	first := vehicle(primitive.NewObjectID(), base.Add(time.Hour))
	second := vehicle(primitive.NewObjectID(), base)
	vehicles := []models.Vehicle{first, second}

	tests := []struct {
		name     string
		current  primitive.ObjectID
		vehicles []models.Vehicle
		expected primitive.ObjectID
	}{
		{"keeps current", second.ID, vehicles, second.ID},
		{"falls back when removed", primitive.NewObjectID(), vehicles, first.ID},
		{"picks first when unset", primitive.NilObjectID, vehicles, first.ID},
		{"none when empty", second.ID, nil, primitive.NilObjectID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectActive(tt.current, tt.vehicles))
		})
	}
}
