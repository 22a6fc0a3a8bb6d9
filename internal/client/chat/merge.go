package chat

import (
	"sort"
)

// Merge 合并本地缓存与服务端消息列表。
// 服务端对已持久化的内容绝对权威；缓存里只有服务端尚未回显的
// 乐观消息（残留集）被保留。结果按发送时间升序稳定排序。
// 该操作幂等：对同一服务端列表重复合并产出相同结果。
func Merge(cached, server []*Message) []*Message {
	seen := make(map[string]struct{}, len(server))
	for _, m := range server {
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
	}

	// 乐观残留：缓存中未被服务端确认的临时消息
	var residue []*Message
	for _, m := range cached {
		if !m.Pending() {
			continue
		}
		if _, ok := seen[m.LocalID]; ok {
			continue
		}
		residue = append(residue, m)
	}

	// 本地已解出的明文随残留之外还要回填进服务端副本，
	// 避免重复解密已经解过的内容
	plain := make(map[string]string, len(cached))
	for _, m := range cached {
		if m.ID != "" && m.Plaintext != "" {
			plain[m.ID] = m.Plaintext
		}
	}

	merged := make([]*Message, 0, len(server)+len(residue))
	for _, m := range server {
		cp := *m
		if cp.Plaintext == "" {
			cp.Plaintext = plain[cp.ID]
		}
		merged = append(merged, &cp)
	}
	merged = append(merged, residue...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}
