package catalog

// Entity persists one collection entry. PayloadJSON holds the adventures wire
// shape without likes, comments or timestamps; those live in their own columns and tables.
type Entity struct {
	EntityID       string `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Collection     string `gorm:"column:collection;size:32;not null;index:idx_entities_collection_created,priority:1"`
	UserID         string `gorm:"column:user_id;size:190;not null"`
	Kind           string `gorm:"column:kind;size:32;not null"`
	PayloadJSON    string `gorm:"column:payload_json;type:text;not null"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null;index:idx_entities_collection_created,priority:2"`
	UpdatedAtNanos int64  `gorm:"column:updated_at_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entity) TableName() string {
	return "entities"
}

// Like is one member of an entity's like set. The composite key keeps the set free of duplicates.
type Like struct {
	EntityID       string `gorm:"column:entity_id;primaryKey;size:190;not null"`
	UserID         string `gorm:"column:user_id;primaryKey;size:190;not null"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "entity_likes"
}

// Comment is an append-only comment row.
type Comment struct {
	CommentID      string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	EntityID       string `gorm:"column:entity_id;size:190;not null;index:idx_comments_entity_created,priority:1"`
	UserID         string `gorm:"column:user_id;size:190;not null"`
	Text           string `gorm:"column:text;type:text;not null"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null;index:idx_comments_entity_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "entity_comments"
}

// Image is an uploaded image served back under /uploads/{id}.
type Image struct {
	ImageID        string `gorm:"column:image_id;primaryKey;size:190;not null"`
	ContentType    string `gorm:"column:content_type;size:64;not null"`
	Data           []byte `gorm:"column:data;not null"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Image) TableName() string {
	return "uploaded_images"
}

// Models lists every record the catalog persists, for schema migration.
func Models() []interface{} {
	return []interface{}{&Entity{}, &Like{}, &Comment{}, &Image{}}
}
