package conversation

import "gorm.io/gorm/clause"

// onConflictDoNothing builds the clause used by UpsertUser to make the
// insert side of "upsert" race-safe under concurrent first-contact
// webhooks for the same phone number.
func onConflictDoNothing(uniqueColumn string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: uniqueColumn}},
		DoNothing: true,
	}
}
