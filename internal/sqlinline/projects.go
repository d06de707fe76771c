package sqlinline

const QGetProject = `--sql 0e5c7a92-b3d4-4f18-a6c0-59d8e1f42b67
select id, owner_id, title, coalesce(product_type, ''), coalesce(description, ''),
       coalesce(features, '[]'::jsonb), coalesce(brand_kit, '{}'::jsonb),
       coalesce(images, '[]'::jsonb), coalesce(aplus_modules, '[]'::jsonb),
       status, coalesce(failure_reason, ''), created_at, updated_at
from projects
where id = $1::uuid;
`

// QSetProjectProcessing starts a new generation run, recording how many
// children the run will enqueue; a fresh run clears the failure reason from
// any previous one.
const QSetProjectProcessing = `--sql d1a84f36-29c7-4b05-8e61-f3b0d97c25ae
update projects
set status = 'PROCESSING', failure_reason = '', pack_expected = $2::int, updated_at = now()
where id = $1::uuid;
`

// QSetProjectCompleted fires only once every expected child of the given pack
// run is terminally completed, and only while the run is still in flight. The
// count and the flip are one statement: a child completing mid-fanout sees
// fewer completed rows than pack_expected, and a sibling failure that already
// flipped the project to FAILED wins.
const QSetProjectCompleted = `--sql 76b3c0e9-5f82-41da-b94c-08a6d5e713f0
update projects
set status = 'COMPLETED', updated_at = now()
where id = $1::uuid
  and status = 'PROCESSING'
  and pack_expected > 0
  and pack_expected = (
      select count(*)
      from jobs
      where parent_job_id = $2::uuid and status = 'completed'
  );
`

// QSetProjectFailed is set-once on the failure reason: the first terminal
// child failure is the pack's failure cause, later siblings never overwrite it.
const QSetProjectFailed = `--sql 39d7e8a1-c460-4f25-b07d-61e2f94c80b3
update projects
set status = 'FAILED',
    failure_reason = case when coalesce(failure_reason, '') = '' then $2::text else failure_reason end,
    updated_at = now()
where id = $1::uuid and status = 'PROCESSING';
`

const QAppendProjectImage = `--sql f82a61d5-3e09-47cb-a2f8-9c54b0e7d126
update projects
set images = coalesce(images, '[]'::jsonb) || $2::jsonb, updated_at = now()
where id = $1::uuid;
`

const QSetProjectAPlusModules = `--sql 84c5f2b7-d013-4e96-b38a-72e1c60d49f5
update projects
set aplus_modules = $2::jsonb, updated_at = now()
where id = $1::uuid;
`
