package models

// All lists every table for AutoMigrate, parents before children.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Member{},
		&Plan{},
		&MemberPlan{},
		&Visit{},
		&Invoice{},
		&Payment{},
		&Setting{},
		&NotificationLog{},
	}
}
