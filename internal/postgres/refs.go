package postgres

import (
	"database/sql"

	"github.com/cleared-dev/tally/internal/model"
)

// refColumns splits a Ref across an (id, other) column pair.
func refColumns(ref model.Ref) (id, other sql.NullString) {
	switch ref.Kind {
	case model.RefSelected:
		id = sql.NullString{String: ref.Value, Valid: true}
	case model.RefFreeText:
		other = sql.NullString{String: ref.Value, Valid: true}
	}
	return id, other
}

// refFromColumns is the inverse of refColumns. id wins when both are set.
func refFromColumns(id, other sql.NullString) model.Ref {
	switch {
	case id.Valid && id.String != "":
		return model.Selected(id.String)
	case other.Valid && other.String != "":
		return model.FreeText(other.String)
	}
	return model.Ref{}
}

// directionHint validates a nullable direction_hint column. NULL and "" mean
// no override.
func directionHint(col sql.NullString) (model.Direction, error) {
	if !col.Valid || col.String == "" {
		return "", nil
	}
	return model.ParseDirection(col.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
