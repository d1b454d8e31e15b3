package repository

import "gorm.io/gorm/clause"

// onConflictID skips an insert whose primary key already exists. Ids are
// assigned upstream, so an id replay is the only conflict treated as a no-op;
// any other constraint violation is returned to the caller.
var onConflictID = clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
