package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS meter_snapshots (
    time timestamp WITH TIME ZONE NOT NULL,
    metername text NULL,
    lastminute float8 NULL,
    last10minute float8 NULL,
    drain float8 NULL,
    total float8 NULL,
    framerate integer NULL
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('meter_snapshots', 'time', if_not_exists => true);`

const createIndexesSQL = `CREATE INDEX IF NOT EXISTS meter_snapshots_metername_time_idx ON meter_snapshots (metername, time DESC);`

const createHourlyViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS meter_snapshots_1h
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 hour', time) AS bucket,
    metername,
    sum(lastminute) AS consumed,
    max(total) AS total,
    max(drain) AS drain,
    avg(framerate) AS framerate
FROM meter_snapshots
GROUP BY bucket, metername
WITH NO DATA;`

const addHourlyAggregationPolicySQL = `SELECT add_continuous_aggregate_policy('meter_snapshots_1h', INTERVAL '1 month', INTERVAL '1 hour', INTERVAL '1 hour', if_not_exists => true);`

const addRetentionPolicySQL = `SELECT add_retention_policy('meter_snapshots', INTERVAL '365 days', if_not_exists => true);`
