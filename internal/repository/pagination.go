package repository

import "gorm.io/gorm"

// paginate 以 gorm scope 形式应用分页。pageSize 不合法时不截断，
// 页码越界回退到第一页。
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return query
		}
		if page < 1 {
			page = 1
		}
		return query.Limit(pageSize).Offset((page - 1) * pageSize)
	}
}
