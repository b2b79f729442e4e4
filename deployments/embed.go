// Package deployments 嵌入部署相关文件到二进制
//
// 包含：
//   - init-db.sql: PostgreSQL 全量建表脚本
//   - docker-compose.yml: 本地/测试基础设施（MongoDB、Redis、Kafka）
package deployments

import _ "embed"

// InitDBSQL PostgreSQL 全量初始化脚本
//
//go:embed init-db.sql
var InitDBSQL string

// DockerCompose 基础设施 Docker Compose 模板
//
//go:embed docker-compose.yml
var DockerCompose string
