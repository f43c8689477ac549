package router

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// APIModule / AdminModule 模块可选择实现其中一个或两个接口
type APIModule interface{ MountAPI(*gin.RouterGroup) }
type AdminModule interface{ MountAdmin(*gin.RouterGroup) }

// 可选：实现该接口可控制挂载顺序（数值越小越先挂）
// 不实现则默认 100
type prioritizer interface{ Priority() int }

func sortByPriority(mods []any) []any {
	out := append([]any(nil), mods...)
	sort.SliceStable(out, func(i, j int) bool {
		return priorityOf(out[i]) < priorityOf(out[j])
	})
	return out
}

// MountAllAPI 在 /api/v1 上挂载实现了 APIModule 的模块
func MountAllAPI(api *gin.RouterGroup, mods ...any) {
	for _, m := range sortByPriority(mods) {
		if am, ok := m.(APIModule); ok {
			am.MountAPI(api)
		}
	}
}

// MountAllAdmin 在 /admin/v1 上挂载实现了 AdminModule 的模块
func MountAllAdmin(admin *gin.RouterGroup, mods ...any) {
	for _, m := range sortByPriority(mods) {
		if am, ok := m.(AdminModule); ok {
			am.MountAdmin(admin)
		}
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
