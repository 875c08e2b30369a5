// Package hitl 提供 Human-in-the-Loop 同步桥接能力。
//
// 代理工具在工作 goroutine 上同步执行，有时需要暂停并向人工操作员提问、
// 请求审批或补充信息。人工的回复只能通过异步的实时消息通道到达。
// 本包负责在两者之间架桥：
//
//   - RequestRegistry 保存待处理请求及其一次性响应槽（ResponseChannel）；
//   - DeliveryDispatcher 在固定大小的后台工作池中把请求格式化后交给 Sender；
//   - WaitCoordinator 在调用方 goroutine 上做有界阻塞等待；
//   - ToolFactory 构建扁平的 string-in/string-out 工具；
//   - Janitor 按年龄清理被遗弃的请求。
//
// 所有公开操作都不会返回错误或 panic：超时与投递失败分别降级为
// 以 [TIMEOUT] / [ERROR] 开头的哨兵字符串，交由代理自己的推理决定下一步。
package hitl
