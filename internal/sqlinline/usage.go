package sqlinline

const QInsertUsageEvent = `--sql 3b8f4a21-6c5d-4e2a-9f10-8a7b3c2d1e4f
insert into usage_events(id, client_id, event_type, success, properties)
values (gen_random_uuid(), nullif($1::text, '')::uuid, $2::text, $3::boolean, $4::jsonb);
`

const QCountUsageEventsSince = `--sql 7d2e9c44-1a3b-4f6c-b8d5-0e9f8a7b6c5d
select
  count(*) filter (where success),
  count(*) filter (where not success)
from usage_events
where event_type = $1::text
  and created_at >= now() - $2::interval;
`

const QRecentUsageEventsByClient = `--sql a4c1f8e2-5b6d-47a9-8c3e-2d1f0e9b8a7c
select id, client_id, event_type, success, properties, created_at
from usage_events
where client_id = $1::uuid
order by created_at desc
limit $2::int;
`
