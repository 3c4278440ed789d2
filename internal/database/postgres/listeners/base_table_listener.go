package listeners

type BaseTableListener struct {
	tableName string
}

func NewBaseTableListener(tableName string) *BaseTableListener {
	return &BaseTableListener{tableName: tableName}
}

func (b *BaseTableListener) GetTableName() string {
	return b.tableName
}
